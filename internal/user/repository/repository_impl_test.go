package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/payoutd/internal/testutil"
	"github.com/smallbiznis/payoutd/internal/user/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository(t *testing.T) {
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	id := testutil.SeedUser(t, db, node, "Seller@Example.com")
	repo := Provide()
	ctx := context.Background()

	user, err := repo.FindByEmail(ctx, db, "seller@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, domain.AccountTypeFree, user.AccountType)
	assert.Nil(t, user.PaystackCustomerCode)

	require.NoError(t, repo.UpdateAccountType(ctx, db, id, domain.AccountTypePremium, time.Now().UTC()))
	require.NoError(t, repo.SetCustomerCode(ctx, db, id, "CUS_1", time.Now().UTC()))

	user, err = repo.FindByID(ctx, db, id)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountTypePremium, user.AccountType)
	require.NotNil(t, user.PaystackCustomerCode)
	assert.Equal(t, "CUS_1", *user.PaystackCustomerCode)

	byCode, err := repo.FindByCustomerCode(ctx, db, "CUS_1")
	require.NoError(t, err)
	require.NotNil(t, byCode)
	assert.Equal(t, id, byCode.ID)

	missing, err := repo.FindByID(ctx, db, node.Generate())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
