package ctl

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPasswords makes readPassword return the given answers in order.
func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })

	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more input")
		}
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
}

func TestGetSimpleText(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("hello world\n"))
	var out bytes.Buffer
	got, err := GetSimpleText(in, "Name?", &out)
	if err != nil || got != "hello world" {
		t.Fatalf("got %q, err=%v", got, err)
	}
	if !strings.HasPrefix(out.String(), "Name?") {
		t.Fatalf("prompt not written: %q", out.String())
	}
}

func TestGetSimpleTextEOF(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("lastline"))
	var out bytes.Buffer
	got, err := GetSimpleText(in, "Name?", &out)
	if err != nil || got != "lastline" {
		t.Fatalf("got %q, err=%v", got, err)
	}
}

func TestGetPassword_Error(t *testing.T) {
	stubPasswords(t)
	var out bytes.Buffer
	_, err := GetPassword("Enter password: ", &out)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestGetNewPassword(t *testing.T) {
	var out bytes.Buffer

	stubPasswords(t, "s3cret", "s3cret")
	pw, err := GetNewPassword(&out)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	stubPasswords(t, "one", "two")
	_, err = GetNewPassword(&out)
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	stubPasswords(t, "", "")
	_, err = GetNewPassword(&out)
	assert.Error(t, err)
}
