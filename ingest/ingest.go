// Package ingest validates raw card lines before they are admitted into the
// inventory pool. A line carries five whitespace-separated fields:
// number, expiration, security code, postal code, email.
package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"vcc-fulfillment/common/errs"
	"vcc-fulfillment/model"

	"github.com/go-playground/validator/v10"
)

type Record struct {
	Number string
	Exp    string
	CVV    string
	Zip    string
	Email  string

	// Raw is the normalized full line, kept verbatim for staff display.
	Raw string
}

type Validator struct {
	Validate *validator.Validate
}

func NewValidator(validate *validator.Validate) Validator {
	return Validator{Validate: validate}
}

// Normalize trims a raw upload line and strips chat markup wrappers
// (backticks, quotes, bold markers) that staff paste along with the card.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "`*\"'")
	return strings.Join(strings.Fields(s), " ")
}

// ParseLine normalizes and validates one line. The returned error wraps
// errs.ErrMalformedRecord with a staff-readable reason.
func (v Validator) ParseLine(raw string) (Record, error) {
	normalized := Normalize(raw)

	fields := strings.Fields(normalized)
	if len(fields) != 5 {
		return Record{}, fmt.Errorf("%w: expected 5 fields, got %d", errs.ErrMalformedRecord, len(fields))
	}

	rec := Record{
		Number: fields[0],
		Exp:    fields[1],
		CVV:    fields[2],
		Zip:    fields[3],
		Email:  fields[4],
		Raw:    normalized,
	}

	if err := v.Validate.Var(rec.Number, "required,len=16,numeric"); err != nil {
		return Record{}, fmt.Errorf("%w: card number must be 16 digits", errs.ErrMalformedRecord)
	}

	if !validExpiration(rec.Exp) {
		return Record{}, fmt.Errorf("%w: expiration must be MM/YY with month 1-12", errs.ErrMalformedRecord)
	}

	if err := v.Validate.Var(rec.CVV, "required,len=3,numeric"); err != nil {
		return Record{}, fmt.Errorf("%w: security code must be 3 digits", errs.ErrMalformedRecord)
	}

	if err := v.Validate.Var(rec.Zip, "required,len=5,numeric"); err != nil {
		return Record{}, fmt.Errorf("%w: postal code must be 5 digits", errs.ErrMalformedRecord)
	}

	if !emailShaped(rec.Email) {
		return Record{}, fmt.Errorf("%w: email is not valid", errs.ErrMalformedRecord)
	}

	return rec, nil
}

// ValidateBatch evaluates every line without short-circuiting. Line numbers
// are 1-based over the raw input; blank lines consume a number but are
// neither validated nor reported. Duplicates cover both repeats inside the
// batch (first occurrence kept) and fingerprints already present in existing.
func (v Validator) ValidateBatch(lines []string, existing map[string]struct{}) (accepted []Record, formatErrors, duplicates []model.IngestLineError) {
	seen := make(map[string]struct{}, len(lines))

	for i, raw := range lines {
		lineNo := i + 1

		if strings.TrimSpace(raw) == "" {
			continue
		}

		rec, err := v.ParseLine(raw)
		if err != nil {
			formatErrors = append(formatErrors, model.IngestLineError{
				Line:   lineNo,
				Raw:    strings.TrimSpace(raw),
				Reason: err.Error(),
			})
			continue
		}

		if _, ok := seen[rec.Number]; ok {
			duplicates = append(duplicates, model.IngestLineError{
				Line:   lineNo,
				Raw:    rec.Raw,
				Reason: "duplicate within batch",
			})
			continue
		}

		if _, ok := existing[rec.Number]; ok {
			duplicates = append(duplicates, model.IngestLineError{
				Line:   lineNo,
				Raw:    rec.Raw,
				Reason: "card already in pool",
			})
			continue
		}

		seen[rec.Number] = struct{}{}
		accepted = append(accepted, rec)
	}

	return accepted, formatErrors, duplicates
}

func validExpiration(exp string) bool {
	parts := strings.Split(exp, "/")
	if len(parts) != 2 {
		return false
	}

	if len(parts[0]) < 1 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return false
	}

	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return false
	}

	if _, err := strconv.Atoi(parts[1]); err != nil {
		return false
	}

	return true
}

func emailShaped(email string) bool {
	at := strings.Index(email, "@")
	if at < 1 {
		return false
	}

	return strings.Contains(email[at+1:], ".")
}
