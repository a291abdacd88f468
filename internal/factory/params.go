package factory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/pkg/types"
)

// CreateParams describes a market to create. Initial liquidity is the native
// value attached to the Create call.
type CreateParams struct {
	Question           string   `json:"question" validate:"required,max=512"`
	MetadataURI        string   `json:"metadata_uri" validate:"omitempty,max=1024"`
	MarketKey          string   `json:"market_key" validate:"required,max=128"`
	FeeBps             uint64   `json:"fee_bps" validate:"lte=10000"`
	StartTime          uint64   `json:"start_time" validate:"required"`
	EndTime            uint64   `json:"end_time" validate:"required,gtfield=StartTime"`
	ResolutionDeadline uint64   `json:"resolution_deadline" validate:"required,gtfield=EndTime"`
	Outcomes           []string `json:"outcomes" validate:"omitempty,min=2,max=32,dive,required,max=64"`

	// Scalar markets only.
	Lower *uint256.Int `json:"lower,omitempty"`
	Upper *uint256.Int `json:"upper,omitempty"`
}

var timeFields = map[string]bool{ //nolint:gochecknoglobals // lookup table
	"StartTime":          true,
	"EndTime":            true,
	"ResolutionDeadline": true,
}

// validate checks p against its tags and the current time. Failures on the
// trading window map to ErrInvalidTimeRange, everything else to ErrInvalidParams.
func (p CreateParams) validate(v *validator.Validate, now uint64) error {
	if err := v.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("create params: %w: %w", types.ErrInvalidParams, err)
		}
		sentinel := types.ErrInvalidParams
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			if timeFields[fe.Field()] {
				sentinel = types.ErrInvalidTimeRange
			}
			fields = append(fields, fe.Field()+"="+fe.Tag())
		}
		return fmt.Errorf("create params [%s]: %w", strings.Join(fields, ", "), sentinel)
	}
	if p.EndTime <= now {
		return fmt.Errorf("end time %d not after now %d: %w", p.EndTime, now, types.ErrInvalidTimeRange)
	}
	return nil
}
