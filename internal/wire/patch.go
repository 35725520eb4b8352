package wire

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/tripsync/backend/internal/domain"
)

// Patch is the JSON form of domain.ItemPatch. A field absent from the object
// is left unchanged, a null clears it, and any other value sets it.
type Patch struct {
	domain.ItemPatch
}

var null = []byte("null")

// MarshalJSON writes only the fields that are part of the patch.
func (p Patch) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	putOptional(m, "title", p.Title)
	putOptional(m, "description", p.Description)
	putOptional(m, "location", p.Location)
	if p.DayDate.IsSet() {
		m["day_date"] = dateFromTime(p.DayDate.Value())
	}
	putOptional(m, "starts_at", p.StartsAt)
	putOptional(m, "ends_at", p.EndsAt)
	putOptional(m, "sort_order", p.SortOrder)
	return json.Marshal(m)
}

// UnmarshalJSON decodes a sparse patch. Unknown fields are rejected so that
// a typo never turns into a silent no-op.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out domain.ItemPatch
	for k, v := range raw {
		var err error
		switch k {
		case "title":
			out.Title, err = decodeOptional[string](v)
		case "description":
			out.Description, err = decodeOptional[string](v)
		case "location":
			out.Location, err = decodeOptional[string](v)
		case "day_date":
			var d domain.Optional[openapi_types.Date]
			d, err = decodeOptional[openapi_types.Date](v)
			if err == nil {
				out.DayDate = dayOptional(d)
			}
		case "starts_at":
			out.StartsAt, err = decodeOptional[time.Time](v)
		case "ends_at":
			out.EndsAt, err = decodeOptional[time.Time](v)
		case "sort_order":
			out.SortOrder, err = decodeOptional[int](v)
		default:
			return fmt.Errorf("unknown patch field %q", k)
		}
		if err != nil {
			return fmt.Errorf("patch field %q: %w", k, err)
		}
	}
	p.ItemPatch = out
	return nil
}

func decodeOptional[T any](raw json.RawMessage) (domain.Optional[T], error) {
	if bytes.Equal(bytes.TrimSpace(raw), null) {
		return domain.Clear[T](), nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.Optional[T]{}, err
	}
	return domain.Set(v), nil
}

func dayOptional(d domain.Optional[openapi_types.Date]) domain.Optional[time.Time] {
	if d.IsCleared() {
		return domain.Clear[time.Time]()
	}
	return domain.Set(*timeFromDate(d.Value()))
}

func putOptional[T any](m map[string]any, key string, o domain.Optional[T]) {
	if !o.IsSet() {
		return
	}
	if v := o.Value(); v != nil {
		m[key] = *v
		return
	}
	m[key] = nil
}
