package record

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupplierRecordValidateRejectsZeroPort(t *testing.T) {
	rec := SupplierRecord{Address: net.ParseIP("127.0.0.1"), Port: 0, Name: "alice"}
	assert.ErrorIs(t, rec.Validate(), ErrInvalidPort)
}

func TestSupplierRecordValidateRejectsMissingAddress(t *testing.T) {
	rec := SupplierRecord{Port: 9000, Name: "alice"}
	require.Error(t, rec.Validate())
}

func TestSupplierRecordValidateAcceptsWellFormedRecord(t *testing.T) {
	rec := SupplierRecord{Address: net.ParseIP("127.0.0.1"), Port: 9000, Name: "alice"}
	require.NoError(t, rec.Validate())
}

func TestFileFingerprintEqual(t *testing.T) {
	a := FileFingerprint([]byte{1, 2, 3})
	b := FileFingerprint([]byte{1, 2, 3})
	c := FileFingerprint([]byte{1, 2, 4})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
