package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"São Paulo", "sao paulo"},
		{"  CLÍNICA Geral ", "clinica geral"},
		{"Ressonância Magnética", "ressonancia magnetica"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fold(tt.in), tt.in)
	}
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("São Paulo", "paulo"))
	assert.True(t, Contains("São Paulo", "sao"))
	assert.True(t, Contains("Clínica Geral", "geral"))
	assert.True(t, Contains("Cardiologia", ""))
	assert.False(t, Contains("Cardiologia", "derma"))
	assert.True(t, Equal("SÃO PAULO", "sao paulo"))
}
