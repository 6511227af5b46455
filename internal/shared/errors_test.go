package shared

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestWrapTxKeepsDomainErrors(t *testing.T) {
	stock := &InsufficientStockError{ItemID: "i1", Available: 1, Requested: 2}
	require.Same(t, stock, WrapTx("inventory: tx", stock))

	wrapped := fmt.Errorf("line 1: %w", NewNotFoundError("item", uuid.Nil))
	require.Equal(t, wrapped, WrapTx("inventory: tx", wrapped))
	require.NoError(t, WrapTx("inventory: tx", nil))

	storeErr := errors.New("connection reset by peer")
	err := WrapTx("inventory: tx", storeErr)
	require.ErrorIs(t, err, ErrTransaction)
	require.ErrorIs(t, err, storeErr)
	require.Equal(t, "the operation could not be completed, no changes were saved", UserSafeMessage(err))
}

func TestErrorMessages(t *testing.T) {
	require.Equal(t, "insufficient stock for Chair. Available: 3, Required: 5",
		(&InsufficientStockError{ItemID: "i1", ItemName: "Chair", Available: 3, Requested: 5}).Error())
	require.Equal(t, "purchase order already exists: PO-7", (&ConflictError{Entity: "purchase order", Key: "PO-7"}).Error())
	require.Equal(t, "scrap already disposed", (&ConflictError{Entity: "scrap", Message: "scrap already disposed"}).Error())
	require.Equal(t, "internal error", UserSafeMessage(errors.New("boom")))
}

func TestValidateReportsFirstField(t *testing.T) {
	type input struct {
		Name     string `validate:"required"`
		Quantity int    `validate:"gt=0"`
	}
	require.NoError(t, Validate(input{Name: "Chair", Quantity: 1}))

	err := Validate(input{Name: "Chair"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "Quantity", verr.Field)
	require.ErrorIs(t, err, ErrValidation)
}

func TestPageFromQuery(t *testing.T) {
	page, perPage := PageFromQuery(url.Values{"page": {"3"}, "per_page": {"9999"}})
	require.Equal(t, 3, page)
	require.Equal(t, maxPerPage, perPage)
	require.Equal(t, 2*maxPerPage, Offset(page, perPage))

	page, perPage = PageFromQuery(url.Values{})
	require.Equal(t, 1, page)
	require.Equal(t, defaultPerPage, perPage)
	require.Equal(t, 0, Offset(page, perPage))

	require.Equal(t, 3, NewPagination(1, 50, 101).TotalPages)
}
