package ingest

import (
	"errors"
	"testing"
	"vcc-fulfillment/common/errs"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "plain line untouched",
			raw:      "4111111111111111 12/26 123 90210 john@example.com",
			expected: "4111111111111111 12/26 123 90210 john@example.com",
		},
		{
			name:     "trims whitespace and backticks",
			raw:      "  `4111111111111111 12/26 123 90210 john@example.com`  ",
			expected: "4111111111111111 12/26 123 90210 john@example.com",
		},
		{
			name:     "collapses inner whitespace",
			raw:      "4111111111111111\t12/26   123 90210  john@example.com",
			expected: "4111111111111111 12/26 123 90210 john@example.com",
		},
		{
			name:     "blank line",
			raw:      "   ",
			expected: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Normalize(tc.raw))
		})
	}
}

func TestParseLine(t *testing.T) {
	v := NewValidator(validator.New())

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid line",
			raw:  "4111111111111111 12/26 123 90210 john@example.com",
		},
		{
			name: "valid single digit month",
			raw:  "4111111111111111 1/26 123 90210 john@example.com",
		},
		{
			name:    "wrong field count",
			raw:     "4111111111111111 12/26 123 90210",
			wantErr: true,
		},
		{
			name:    "card number 15 digits",
			raw:     "411111111111111 12/26 123 90210 john@example.com",
			wantErr: true,
		},
		{
			name:    "card number not numeric",
			raw:     "411111111111111a 12/26 123 90210 john@example.com",
			wantErr: true,
		},
		{
			name:    "month 13",
			raw:     "4111111111111111 13/26 123 90210 john@example.com",
			wantErr: true,
		},
		{
			name:    "month 0",
			raw:     "4111111111111111 0/26 123 90210 john@example.com",
			wantErr: true,
		},
		{
			name:    "expiration missing slash",
			raw:     "4111111111111111 1226 123 90210 john@example.com",
			wantErr: true,
		},
		{
			name:    "security code 2 digits",
			raw:     "4111111111111111 12/26 12 90210 john@example.com",
			wantErr: true,
		},
		{
			name:    "postal code 4 digits",
			raw:     "4111111111111111 12/26 123 9021 john@example.com",
			wantErr: true,
		},
		{
			name:    "email without dot after at",
			raw:     "4111111111111111 12/26 123 90210 john@example",
			wantErr: true,
		},
		{
			name:    "email without at",
			raw:     "4111111111111111 12/26 123 90210 john.example.com",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := v.ParseLine(tc.raw)

			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errs.ErrMalformedRecord))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "4111111111111111", rec.Number)
			assert.Equal(t, "123", rec.CVV)
			assert.Equal(t, "90210", rec.Zip)
			assert.Equal(t, "john@example.com", rec.Email)
		})
	}
}

func TestValidateBatch(t *testing.T) {
	v := NewValidator(validator.New())

	t.Run("clean batch accepted whole", func(t *testing.T) {
		lines := []string{
			"4111111111111111 12/26 123 90210 a@example.com",
			"4222222222222222 1/27 456 10001 b@example.com",
		}

		accepted, formatErrors, duplicates := v.ValidateBatch(lines, nil)

		require.Len(t, accepted, 2)
		assert.Empty(t, formatErrors)
		assert.Empty(t, duplicates)
		assert.Equal(t, "4111111111111111", accepted[0].Number)
		assert.Equal(t, "4222222222222222", accepted[1].Number)
	})

	t.Run("one malformed line rejects nothing else but flags its line number", func(t *testing.T) {
		lines := []string{
			"4111111111111111 12/26 123 90210 a@example.com",
			"4222222222222222 1/27 456 10001 b@example.com",
			"433333333333333 12/26 123 90210 c@example.com", // 15 digits
			"4444444444444444 12/26 123 90210 d@example.com",
			"4555555555555555 12/26 123 90210 e@example.com",
		}

		accepted, formatErrors, duplicates := v.ValidateBatch(lines, nil)

		require.Len(t, formatErrors, 1)
		assert.Equal(t, 3, formatErrors[0].Line)
		assert.Empty(t, duplicates)
		assert.Len(t, accepted, 4)
	})

	t.Run("blank lines consume a line number but are skipped", func(t *testing.T) {
		lines := []string{
			"",
			"4111111111111111 12/26 123 90210 a@example.com",
			"   ",
			"bad line",
		}

		accepted, formatErrors, duplicates := v.ValidateBatch(lines, nil)

		require.Len(t, formatErrors, 1)
		assert.Equal(t, 4, formatErrors[0].Line)
		assert.Empty(t, duplicates)
		assert.Len(t, accepted, 1)
	})

	t.Run("intra batch duplicate keeps first occurrence", func(t *testing.T) {
		lines := []string{
			"4111111111111111 12/26 123 90210 a@example.com",
			"4111111111111111 11/27 999 10001 z@example.com",
		}

		accepted, formatErrors, duplicates := v.ValidateBatch(lines, nil)

		assert.Empty(t, formatErrors)
		require.Len(t, duplicates, 1)
		assert.Equal(t, 2, duplicates[0].Line)
		assert.Equal(t, "duplicate within batch", duplicates[0].Reason)
		require.Len(t, accepted, 1)
		assert.Equal(t, "12/26", accepted[0].Exp)
	})

	t.Run("card already pooled is an inter batch duplicate", func(t *testing.T) {
		lines := []string{
			"4111111111111111 12/26 123 90210 a@example.com",
		}
		existing := map[string]struct{}{"4111111111111111": {}}

		accepted, formatErrors, duplicates := v.ValidateBatch(lines, existing)

		assert.Empty(t, accepted)
		assert.Empty(t, formatErrors)
		require.Len(t, duplicates, 1)
		assert.Equal(t, "card already in pool", duplicates[0].Reason)
	})
}
