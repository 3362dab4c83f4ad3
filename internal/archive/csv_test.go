package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const csvHeader = `name,text,date,time,retweets,likes,link,type,image,video,ad,description,location,language,source`

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSVDropsHeader(t *testing.T) {
	path := writeCSV(t, csvHeader+"\n"+
		`wint (@dril),hello world,2022-11-23,19:32,100,200,https://twitter.com/dril/status/42,Tweet,No,No,,,big burbank,en,web`+"\n"+
		`wint (@dril),RT @someone cool,2022-11-24,08:00,1,2,https://twitter.com/dril/status/43,ReTweet,No,No,,,big burbank,en,web`+"\n")

	rows, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(42), rows[0].ID)
	assert.False(t, rows[0].IsRetweet)
	assert.Equal(t, int64(43), rows[1].ID)
	assert.True(t, rows[1].IsRetweet)
}

func TestReadCSVMalformedIsFatal(t *testing.T) {
	path := writeCSV(t, csvHeader+"\n"+`only,two`+"\n")
	_, err := ReadCSV(path)
	assert.Error(t, err)
}

func TestReadCSVBadLinkYieldsZeroID(t *testing.T) {
	path := writeCSV(t, csvHeader+"\n"+
		`wint (@dril),hello,2022-11-23,19:32,1,2,not a link,Tweet,No,No,,,big burbank,en,web`+"\n")

	rows, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(0), rows[0].ID)
}

func TestStatusLinkID(t *testing.T) {
	assert.Equal(t, int64(42), statusLinkID("https://twitter.com/dril/status/42"))
	assert.Equal(t, int64(42), statusLinkID("  https://twitter.com/dril/status/42/ "))
	assert.Equal(t, int64(0), statusLinkID("https://twitter.com/dril"))
	assert.Equal(t, int64(0), statusLinkID(""))
}

func TestChunk(t *testing.T) {
	ids := make([]int64, 0, 250)
	for i := int64(0); i < 250; i++ {
		ids = append(ids, i)
	}

	batches := chunk(ids)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 100)
	assert.Len(t, batches[1], 100)
	assert.Len(t, batches[2], 50)
	assert.Equal(t, int64(0), batches[0][0])
	assert.Equal(t, int64(249), batches[2][49])

	assert.Nil(t, chunk(nil))
}
