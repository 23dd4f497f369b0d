package usecase

import (
	"context"
	"errors"
	"testing"

	"isp-portal/internal/dto/request"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePackage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Package.CreatePackage(ctx, &request.CreatePackageRequest{
		Name:         " Monthly Unlimited ",
		Price:        decimal.NewFromInt(30000),
		DurationDays: 30,
		DownloadKbps: 4096,
	})
	require.NoError(t, err)
	assert.Equal(t, "Monthly Unlimited", res.Name)
	assert.Equal(t, "TZS", res.Currency)
	assert.True(t, res.IsActive)

	got, err := f.svc.Package.GetPackage(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(30000)))
}

func TestCreatePackage_RejectsFreePackages(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Package.CreatePackage(context.Background(), &request.CreatePackageRequest{
		Name:  "Free",
		Price: decimal.Zero,
	})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "price")
}

func TestListActive_HidesDisabledPackages(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	daily := f.store.addPackage("Daily", 1000, 1)
	f.store.addPackage("Weekly", 5000, 7)

	require.NoError(t, f.svc.Package.SetActive(ctx, daily.ID, false))

	list, err := f.svc.Package.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Weekly", list[0].Name)

	assert.ErrorIs(t, f.svc.Package.SetActive(ctx, 404, true), ErrPackageNotFound)

	_, err = f.svc.Package.GetPackage(ctx, 404)
	assert.ErrorIs(t, err, ErrPackageNotFound)
}
