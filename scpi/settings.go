package scpi

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

// SettingKind is the value type of a registered setting.
type SettingKind uint8

// Setting value kinds.
const (
	KindString SettingKind = iota
	KindInt
	KindFloat
	KindBool
)

// Setting maps a named instrument parameter to its query/set command pair.
//
// Set commands use a single %v verb for the value; a Setting with an empty Set
// string is read-only.
type Setting struct {
	Name  string
	Kind  SettingKind
	Query string
	Set   string
}

// RegisterSetting adds settings to the device parameter table, replacing
// entries with the same name.
func (d *Device) RegisterSetting(settings ...Setting) {
	for _, s := range settings {
		d.settings.Store(s.Name, s)
	}
}

// SettingNames returns the sorted names of all registered settings.
func (d *Device) SettingNames() []string {
	names := make([]string, 0, d.settings.Size())
	d.settings.Range(func(name string, _ Setting) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)

	return names
}

// GetSetting queries a registered setting and returns its typed value: string,
// int, float64, or bool per the setting kind.
func (d *Device) GetSetting(ctx context.Context, name string) (any, error) {
	s, ok := d.settings.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSetting, name)
	}

	switch s.Kind {
	case KindInt:
		return d.AskInt(ctx, s.Query)
	case KindFloat:
		return d.AskFloat(ctx, s.Query)
	case KindBool:
		return d.AskBool(ctx, s.Query)
	default:
		return d.Ask(ctx, s.Query)
	}
}

// SetSetting writes a registered setting. The value is rendered per the setting
// kind; booleans accept bool values, numeric kinds accept any numeric type.
func (d *Device) SetSetting(ctx context.Context, name string, value any) error {
	s, ok := d.settings.Load(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSetting, name)
	}
	if s.Set == "" {
		return fmt.Errorf("setting %q is read-only", name)
	}

	rendered, err := renderValue(s.Kind, value)
	if err != nil {
		return fmt.Errorf("setting %q: %w", name, err)
	}

	return d.Write(ctx, fmt.Sprintf(s.Set, rendered))
}

// Snapshot queries every registered setting and returns name-value pairs.
// The first query error aborts the snapshot.
func (d *Device) Snapshot(ctx context.Context) (map[string]any, error) {
	snapshot := make(map[string]any)
	for _, name := range d.SettingNames() {
		v, err := d.GetSetting(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("snapshot %q: %w", name, err)
		}
		snapshot[name] = v
	}

	return snapshot, nil
}

// Apply writes every named value that matches a registered setting, in name
// order. The first write error aborts the apply.
func (d *Device) Apply(ctx context.Context, values map[string]any) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := d.SetSetting(ctx, name, values[name]); err != nil {
			return fmt.Errorf("apply %q: %w", name, err)
		}
	}

	return nil
}

func renderValue(kind SettingKind, value any) (string, error) {
	switch kind {
	case KindBool:
		b, ok := value.(bool)
		if !ok {
			return "", fmt.Errorf("value %v is not a bool", value)
		}

		return FormatBool(b), nil

	case KindInt:
		switch v := value.(type) {
		case int:
			return strconv.Itoa(v), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case float64:
			return strconv.Itoa(int(v)), nil
		default:
			return "", fmt.Errorf("value %v is not an integer", value)
		}

	case KindFloat:
		switch v := value.(type) {
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64), nil
		case float32:
			return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
		case int:
			return strconv.Itoa(v), nil
		default:
			return "", fmt.Errorf("value %v is not a number", value)
		}

	default:
		return fmt.Sprint(value), nil
	}
}
