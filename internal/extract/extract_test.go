package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"qaforge/internal/util"
)

func TestMimeFromName(t *testing.T) {
	require.Equal(t, MimePDF, MimeFromName("Lecture.PDF"))
	require.Equal(t, MimeMarkdown, MimeFromName("notes.md"))
	require.Equal(t, MimeText, MimeFromName("a/b/c.txt"))
	require.Empty(t, MimeFromName("slides.pptx"))
}

func TestTextPlain(t *testing.T) {
	got, err := Text(MimeText, []byte("Раздел\r\n\n\n\nтекст\x00  с \t пробелами\xff"), nil)
	require.NoError(t, err)
	require.Equal(t, "Раздел\n\nтекст с пробелами", got)
}

func TestTextUnsupported(t *testing.T) {
	_, err := Text("application/zip", []byte("PK"), nil)
	require.ErrorIs(t, err, util.ErrUnsupportedType)
}

func TestTextBrokenPDF(t *testing.T) {
	_, err := Text(MimePDF, []byte("not a pdf"), nil)
	require.Error(t, err)
}
