package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/modules/optimization"
)

func TestParseView(t *testing.T) {
	conf := 0.6

	tests := []struct {
		name    string
		input   string
		want    optimization.View
		wantErr bool
	}{
		{
			name:  "absolute",
			input: "USA QUALITY=0.10",
			want:  optimization.View{Type: optimization.ViewAbsolute, Asset: "USA QUALITY", Return: 0.10},
		},
		{
			name:  "relative",
			input: "USA QUALITY > USA LARGE VALUE = 0.02",
			want: optimization.View{
				Type:   optimization.ViewRelative,
				Asset:  "USA QUALITY",
				Versus: "USA LARGE VALUE",
				Return: 0.02,
			},
		},
		{
			name:  "negative relative",
			input: "A>B=-0.03",
			want:  optimization.View{Type: optimization.ViewRelative, Asset: "A", Versus: "B", Return: -0.03},
		},
		{
			name:  "confidence",
			input: "A=0.12@0.6",
			want:  optimization.View{Type: optimization.ViewAbsolute, Asset: "A", Return: 0.12, Confidence: &conf},
		},
		{name: "missing return", input: "A", wantErr: true},
		{name: "bad number", input: "A=high", wantErr: true},
		{name: "missing asset", input: "=0.1", wantErr: true},
		{name: "missing versus", input: "A>=0.1", wantErr: true},
		{name: "confidence out of range", input: "A=0.1@1.5", wantErr: true},
		{name: "bad confidence", input: "A=0.1@sure", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseView(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestViewList(t *testing.T) {
	var views viewList
	require.NoError(t, views.Set("A=0.1"))
	require.NoError(t, views.Set("B>A=0.02@0.5"))
	assert.Error(t, views.Set("broken"))

	require.Len(t, views, 2)
	assert.Equal(t, "A=0.1, B>A=0.02@0.5", views.String())
}
