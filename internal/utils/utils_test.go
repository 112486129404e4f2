package utils_test

import (
	"testing"

	"github.com/mautops/videoflow-gin/internal/utils"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalString(t *testing.T) {
	params := map[string]string{
		"out_trade_no": "ord-1",
		"total_amount": "9.90",
		"sign":         "abc",
		"memo":         "",
		"app_id":       "2021",
	}
	assert.Equal(t, "app_id=2021&out_trade_no=ord-1&total_amount=9.90", utils.CanonicalString(params, "sign"))
}

func TestSignAndVerifyHMAC(t *testing.T) {
	sig := utils.SignHMAC("payload", "secret")
	assert.Len(t, sig, 64)
	assert.True(t, utils.VerifyHMAC("payload", "secret", sig))
	assert.False(t, utils.VerifyHMAC("payload", "other", sig))
	assert.False(t, utils.VerifyHMAC("tampered", "secret", sig))
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, utils.ValidateID("ord_01-abc"))
	assert.ErrorIs(t, utils.ValidateID(""), utils.ErrEmptyID)
	assert.ErrorIs(t, utils.ValidateID("a;drop"), utils.ErrInvalidIDFormat)
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, utils.ValidateURL("https://cdn.example.com/v.mp4"))
	assert.ErrorIs(t, utils.ValidateURL("  "), utils.ErrEmptyURL)
	assert.ErrorIs(t, utils.ValidateURL("ftp://x"), utils.ErrInvalidURL)
}

func TestTrimAndValidate(t *testing.T) {
	s, err := utils.TrimAndValidate("  <b>hi</b> ", 20)
	assert.NoError(t, err)
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", s)

	_, err = utils.TrimAndValidate("toolong", 3)
	assert.ErrorIs(t, err, utils.ErrStringTooLong)
}

func TestSQLSafety(t *testing.T) {
	assert.NoError(t, utils.ValidateFieldName("created_at"))
	assert.Error(t, utils.ValidateFieldName("select"))
	assert.Error(t, utils.ValidateFieldName("name; drop"))

	assert.NoError(t, utils.ValidateSortField("amount", []string{"amount", "created_at"}))
	assert.Error(t, utils.ValidateSortField("status", []string{"amount"}))

	assert.NoError(t, utils.ValidateSortOrder(" desc "))
	assert.Error(t, utils.ValidateSortOrder("sideways"))
}
