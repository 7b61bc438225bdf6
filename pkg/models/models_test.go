package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChapterKind(t *testing.T) {
	zero, five := 0, 5

	assert.Equal(t, KindDivider, ChapterSummary{VolumeChapterNumber: &zero}.Kind())
	assert.Equal(t, KindContent, ChapterSummary{VolumeChapterNumber: &five}.Kind())
	assert.Equal(t, KindContent, ChapterSummary{}.Kind(),
		"missing volume_chapter_number means plain content")
}

func TestChapterText(t *testing.T) {
	body := "some text"
	assert.Equal(t, "", Chapter{}.Text())
	assert.False(t, Chapter{}.HasContent())

	ch := Chapter{Content: &body}
	assert.True(t, ch.HasContent())
	assert.Equal(t, body, ch.Text())
}

func TestImportJobPercent(t *testing.T) {
	assert.Equal(t, 0, ImportJob{}.Percent())
	assert.Equal(t, 0, ImportJob{Done: 5}.Percent(), "unknown total reads as zero")
	assert.Equal(t, 50, ImportJob{Done: 5, Total: 10}.Percent())
	assert.Equal(t, 100, ImportJob{Done: 10, Total: 10}.Percent())
}

func TestImportJobTerminal(t *testing.T) {
	assert.False(t, ImportJob{Status: JobPending}.Terminal())
	assert.False(t, ImportJob{Status: JobRunning}.Terminal())
	assert.True(t, ImportJob{Status: JobSuccess}.Terminal())
	assert.True(t, ImportJob{Status: JobError}.Terminal())
}
