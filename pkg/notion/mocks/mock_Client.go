// Package mocks provides test doubles for the notion client.
package mocks

import (
	"context"

	notionapi "github.com/jomei/notionapi"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// GetDatabase provides a mock function with given fields: ctx, dbID
func (_m *MockClient) GetDatabase(ctx context.Context, dbID string) (*notionapi.Database, error) {
	ret := _m.Called(ctx, dbID)

	if len(ret) == 0 {
		panic("no return value specified for GetDatabase")
	}

	var r0 *notionapi.Database
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*notionapi.Database, error)); ok {
		return rf(ctx, dbID)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *notionapi.Database); ok {
		r0 = rf(ctx, dbID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*notionapi.Database)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, dbID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// QueryDatabase provides a mock function with given fields: ctx, dbID, req
func (_m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	ret := _m.Called(ctx, dbID, req)

	if len(ret) == 0 {
		panic("no return value specified for QueryDatabase")
	}

	var r0 *notionapi.DatabaseQueryResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)); ok {
		return rf(ctx, dbID, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, *notionapi.DatabaseQueryRequest) *notionapi.DatabaseQueryResponse); ok {
		r0 = rf(ctx, dbID, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*notionapi.DatabaseQueryResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, *notionapi.DatabaseQueryRequest) error); ok {
		r1 = rf(ctx, dbID, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// CreatePage provides a mock function with given fields: ctx, req
func (_m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for CreatePage")
	}

	var r0 *notionapi.Page
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, *notionapi.PageCreateRequest) (*notionapi.Page, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, *notionapi.PageCreateRequest) *notionapi.Page); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*notionapi.Page)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, *notionapi.PageCreateRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// UpdatePage provides a mock function with given fields: ctx, pageID, req
func (_m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	ret := _m.Called(ctx, pageID, req)

	if len(ret) == 0 {
		panic("no return value specified for UpdatePage")
	}

	var r0 *notionapi.Page
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, *notionapi.PageUpdateRequest) (*notionapi.Page, error)); ok {
		return rf(ctx, pageID, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, *notionapi.PageUpdateRequest) *notionapi.Page); ok {
		r0 = rf(ctx, pageID, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*notionapi.Page)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, *notionapi.PageUpdateRequest) error); ok {
		r1 = rf(ctx, pageID, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// GetBlockChildren provides a mock function with given fields: ctx, blockID, page
func (_m *MockClient) GetBlockChildren(ctx context.Context, blockID string, page *notionapi.Pagination) (*notionapi.GetChildrenResponse, error) {
	ret := _m.Called(ctx, blockID, page)

	if len(ret) == 0 {
		panic("no return value specified for GetBlockChildren")
	}

	var r0 *notionapi.GetChildrenResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, *notionapi.Pagination) (*notionapi.GetChildrenResponse, error)); ok {
		return rf(ctx, blockID, page)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, *notionapi.Pagination) *notionapi.GetChildrenResponse); ok {
		r0 = rf(ctx, blockID, page)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*notionapi.GetChildrenResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, *notionapi.Pagination) error); ok {
		r1 = rf(ctx, blockID, page)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// AppendBlockChildren provides a mock function with given fields: ctx, blockID, children
func (_m *MockClient) AppendBlockChildren(ctx context.Context, blockID string, children []notionapi.Block) error {
	ret := _m.Called(ctx, blockID, children)

	if len(ret) == 0 {
		panic("no return value specified for AppendBlockChildren")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, []notionapi.Block) error); ok {
		r0 = rf(ctx, blockID, children)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// DeleteBlock provides a mock function with given fields: ctx, blockID
func (_m *MockClient) DeleteBlock(ctx context.Context, blockID string) error {
	ret := _m.Called(ctx, blockID)

	if len(ret) == 0 {
		panic("no return value specified for DeleteBlock")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string) error); ok {
		r0 = rf(ctx, blockID)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
