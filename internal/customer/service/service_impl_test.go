package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/payoutd/internal/customer/domain"
	"github.com/smallbiznis/payoutd/internal/customer/repository"
	"github.com/smallbiznis/payoutd/internal/testutil"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKeepsFirstOrder(t *testing.T) {
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	svc := New(Params{DB: db, Log: testutil.Logger(), GenID: node, Repo: repository.Provide()})
	ctx := context.Background()
	seller := testutil.SeedUser(t, db, node, "seller@example.com")

	first := node.Generate()
	c, err := svc.Record(ctx, domain.RecordRequest{SellerID: seller, Email: " Buyer@Example.com ", Name: "Grace", OrderID: first})
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", c.Email)
	assert.Equal(t, first, c.FirstOrderID)

	again, err := svc.Record(ctx, domain.RecordRequest{SellerID: seller, Email: "buyer@example.com", OrderID: node.Generate()})
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
	assert.Equal(t, first, again.FirstOrderID)
	assert.Equal(t, "Grace", again.Name)

	resp, err := svc.List(ctx, domain.ListCustomerRequest{SellerID: seller})
	require.NoError(t, err)
	assert.Len(t, resp.Customers, 1)
}

func TestRecordValidation(t *testing.T) {
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	svc := New(Params{DB: db, Log: testutil.Logger(), GenID: node, Repo: repository.Provide()})
	ctx := context.Background()

	_, err := svc.Record(ctx, domain.RecordRequest{Email: "a@b.c", OrderID: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidSeller)

	_, err = svc.Record(ctx, domain.RecordRequest{SellerID: 1, Email: "nope", OrderID: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = svc.List(ctx, domain.ListCustomerRequest{SellerID: 1, Pagination: pagination.Pagination{PageToken: "garbage"}})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}
