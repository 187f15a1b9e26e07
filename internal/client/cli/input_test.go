package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("hello world\n"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Name?\n> ", out.String())
}

func TestGetSimpleTextEOF(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("lastline"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)

	_, err = GetSimpleText(rdr(""), "Name?", &out)
	assert.Error(t, err)
}

func TestGetMultiline(t *testing.T) {
	var out bytes.Buffer
	got, err := GetMultiline(rdr("a\r\nb\n\nignored\n"), "Enter text", &out)
	require.NoError(t, err)
	assert.Equal(t, "a\nb", got)

	got, err = GetMultiline(rdr("no newline"), "Enter text", &out)
	require.NoError(t, err)
	assert.Equal(t, "no newline", got)
}

func TestGetPassword_Error(t *testing.T) {
	old := readPassword
	defer func() { readPassword = old }()
	readPassword = func(int) ([]byte, error) {
		return nil, errors.New("boom")
	}
	var out bytes.Buffer
	_, err := GetPassword(&out)
	assert.Error(t, err)
}

func TestParseVisibility(t *testing.T) {
	v, err := parseVisibility("")
	require.NoError(t, err)
	assert.Equal(t, models.VisibilityPrivate, v)

	v, err = parseVisibility("PUBLIC")
	require.NoError(t, err)
	assert.Equal(t, models.VisibilityPublic, v)

	_, err = parseVisibility("friends")
	assert.Error(t, err)
}

func TestParseUnlock(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := parseUnlock("", now)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseUnlock("72h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(72*time.Hour), *got)

	got, err = parseUnlock("2030-05-01T10:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC), *got)

	_, err = parseUnlock("next week", now)
	assert.Error(t, err)
}

func TestParseRadius(t *testing.T) {
	r, err := parseRadius("", 500)
	require.NoError(t, err)
	assert.Equal(t, 500.0, r)

	r, err = parseRadius("120.5", 500)
	require.NoError(t, err)
	assert.Equal(t, 120.5, r)

	for _, bad := range []string{"0", "-3", "12abc"} {
		_, err := parseRadius(bad, 500)
		assert.Error(t, err, bad)
	}
}

func TestReadTrack(t *testing.T) {
	pts, err := readTrack(strings.NewReader("# walk\n13.08,80.27\n\n13.09, 80.28\n"))
	require.NoError(t, err)
	assert.Equal(t, []geo.Point{{Lat: 13.08, Lng: 80.27}, {Lat: 13.09, Lng: 80.28}}, pts)

	_, err = readTrack(strings.NewReader("13.08,80.27\n95,0\n"))
	assert.ErrorContains(t, err, "line 2")
}
