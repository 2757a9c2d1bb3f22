package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Tecnoflex  Manufacturing ", "tecnoflex manufacturing"},
		{"Diagnóstico", "diagnostico"},
		{"Grupo Industrial S.A. de C.V.", "grupo industrial sa de cv"},
		{"Smith & Sons, Inc.", "smith & sons inc"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeName(tt.input), "input %q", tt.input)
	}
}

func TestStripHonorifics(t *testing.T) {
	assert.Equal(t, "Sofía Galindo", StripHonorifics("Lic. Sofía Galindo"))
	assert.Equal(t, "Pérez", StripHonorifics("Ing Pérez"))
	assert.Equal(t, "John Carter", StripHonorifics("Mr. John Carter"))
	assert.Equal(t, "Licha Ramos", StripHonorifics("Licha Ramos"))
	assert.Equal(t, "", StripHonorifics("Señora"))
}

func TestClientMatchKey(t *testing.T) {
	a := ClientMatchKey("RetailMax", "Lic. Sofía Galindo")
	b := ClientMatchKey("retailmax ", "Sofia  Galindo")
	assert.Equal(t, a, b)
	assert.Equal(t, "retailmax|sofia galindo", a)

	assert.NotEqual(t, ClientMatchKey("RetailMax", ""), ClientMatchKey("RetailMax", "Sofía Galindo"))
	assert.Equal(t, "retailmax|", ClientMatchKey("RetailMax", ""))
}

func TestSameCompany(t *testing.T) {
	assert.True(t, SameCompany("Tecnoflex Manufacturing", "TECNOFLEX manufacturing"))
	assert.False(t, SameCompany("Tecnoflex", "Tecnoflex Manufacturing"))
	assert.False(t, SameCompany("", ""))
}

func TestLoadTimezone(t *testing.T) {
	loc, err := LoadTimezone("America/Mexico_City")
	require.NoError(t, err)
	assert.Equal(t, "America/Mexico_City", loc.String())

	for name, offset := range map[string]int{
		"UTC-06:00": -6 * 3600,
		"UTC+5":     5 * 3600,
		"-0530":     -(5*3600 + 30*60),
	} {
		loc, err := LoadTimezone(name)
		require.NoError(t, err, name)
		_, got := time.Date(2025, 11, 25, 9, 30, 0, 0, time.UTC).In(loc).Zone()
		assert.Equal(t, offset, got, name)
	}

	for _, bad := range []string{"", "Mars/Olympus_Mons", "UTC+99", "hora del centro"} {
		_, err := LoadTimezone(bad)
		assert.Error(t, err, bad)
	}
}
