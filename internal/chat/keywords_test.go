package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input  string
		want   command
		wantOK bool
	}{
		{"/list", command{Name: "list"}, true},
		{"/LIST", command{Name: "list"}, true},
		{"/list@SubtrackBot", command{Name: "list"}, true},
		{"/search  netflix plan ", command{Name: "search", Args: "netflix plan"}, true},
		{"/edit@bot a1b2c3d4", command{Name: "edit", Args: "a1b2c3d4"}, true},
		{"/", command{}, false},
		{"list", command{}, false},
		{"", command{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseCommand(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfirmationIntent(t *testing.T) {
	tests := []struct {
		input string
		want  intent
	}{
		{"yes", intentConfirm},
		{"Sim!", intentConfirm},
		{" ok ", intentConfirm},
		{"no", intentCancel},
		{"Não", intentCancel},
		{"cancelar", intentCancel},
		{"/cancel", intentCancel},
		{"/cancel@bot", intentCancel},
		{"edit", intentEdit},
		{"Editar.", intentEdit},
		{"maybe", intentUnknown},
		{"/add", intentUnknown},
		{"", intentUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, confirmationIntent(tt.input))
		})
	}
}

func TestIsCancel(t *testing.T) {
	assert.True(t, isCancel("Cancel"))
	assert.True(t, isCancel("cancelar!"))
	assert.True(t, isCancel("/cancel"))
	assert.False(t, isCancel("cancel my netflix"))
	assert.False(t, isCancel(""))
}
