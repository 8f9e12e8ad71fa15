package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("list staffs: %w", BadRequest("Invalid order_by column: %s", "salary"))
	require.Equal(t, KindBadRequest, KindOf(err))
	require.Equal(t, "Invalid order_by column: salary", As(err).Detail)

	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
	require.Equal(t, KindInternal, KindOf(nil))
}

func TestInternalHidesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("relation \"acme.staffs\" does not exist")
	d := FromError(Internal(cause))
	require.Equal(t, http.StatusInternalServerError, d.Status)
	require.Equal(t, GenericMessage, d.Detail)
	require.NotContains(t, d.Detail, "acme")

	// unclassified errors are treated the same way
	d = FromError(cause)
	require.Equal(t, GenericMessage, d.Detail)
	require.ErrorIs(t, Internal(cause), cause)
}

func TestWrite(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	Write(rec, FromError(NotFound("Department not found")))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body Details
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, TypeNotFound, body.Type)
	require.Equal(t, "Department not found", body.Detail)
	require.Equal(t, http.StatusNotFound, body.Status)
}
