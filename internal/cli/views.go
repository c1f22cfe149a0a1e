package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aristath/frontier/internal/modules/optimization"
)

// viewList collects repeated -view flags.
type viewList []optimization.View

func (v *viewList) String() string {
	parts := make([]string, len(*v))
	for i, view := range *v {
		parts[i] = formatView(view)
	}
	return strings.Join(parts, ", ")
}

func (v *viewList) Set(s string) error {
	view, err := ParseView(s)
	if err != nil {
		return err
	}
	*v = append(*v, view)
	return nil
}

// ParseView reads "ASSET=r" (absolute) or "ASSET>OTHER=r" (relative), with
// an optional "@c" confidence suffix.
func ParseView(s string) (optimization.View, error) {
	var view optimization.View

	eq := strings.LastIndex(s, "=")
	if eq < 0 {
		return view, fmt.Errorf("view %q: expected ASSET=return", s)
	}
	subject, value := strings.TrimSpace(s[:eq]), strings.TrimSpace(s[eq+1:])

	if at := strings.Index(value, "@"); at >= 0 {
		conf, err := strconv.ParseFloat(strings.TrimSpace(value[at+1:]), 64)
		if err != nil {
			return view, fmt.Errorf("view %q: invalid confidence: %w", s, err)
		}
		if conf < 0 || conf > 1 {
			return view, fmt.Errorf("view %q: confidence must be in [0, 1]", s)
		}
		view.Confidence = &conf
		value = strings.TrimSpace(value[:at])
	}

	ret, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return view, fmt.Errorf("view %q: invalid return: %w", s, err)
	}
	view.Return = ret

	if gt := strings.Index(subject, ">"); gt >= 0 {
		view.Type = optimization.ViewRelative
		view.Asset = strings.TrimSpace(subject[:gt])
		view.Versus = strings.TrimSpace(subject[gt+1:])
		if view.Versus == "" {
			return view, fmt.Errorf("view %q: missing comparison asset", s)
		}
	} else {
		view.Type = optimization.ViewAbsolute
		view.Asset = subject
	}
	if view.Asset == "" {
		return view, fmt.Errorf("view %q: missing asset", s)
	}
	return view, nil
}

func formatView(v optimization.View) string {
	s := v.Asset
	if v.Type == optimization.ViewRelative {
		s += ">" + v.Versus
	}
	s += "=" + strconv.FormatFloat(v.Return, 'g', -1, 64)
	if v.Confidence != nil {
		s += "@" + strconv.FormatFloat(*v.Confidence, 'g', -1, 64)
	}
	return s
}
