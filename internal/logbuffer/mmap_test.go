package logbuffer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAndOpenLogFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream-7-1.logbuffer")

	created, err := CreateLogFile(path, 1<<16)
	require.NoError(t, err)
	created.Metadata().SetInitialTermID(42)
	created.Metadata().SetMTULength(1408)
	copy(created.Term(0), []byte("hello"))
	require.NoError(t, created.Close())

	opened, err := OpenLogFile(path)
	require.NoError(t, err)
	defer opened.Close()

	require.EqualValues(t, 1<<16, opened.Metadata().TermLength())
	require.EqualValues(t, 42, opened.Metadata().InitialTermID())
	require.EqualValues(t, 1408, opened.Metadata().MTULength())
	require.Equal(t, []byte("hello"), opened.Term(0)[:5])
}

func TestCreateLogFileRejectsNonPowerOfTwoTermLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.logbuffer")
	_, err := CreateLogFile(path, 100)
	require.Error(t, err)
}
