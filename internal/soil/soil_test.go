package soil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/soilscan/internal/acquire"
)

func TestLabelOrder(t *testing.T) {
	assert.Equal(t, []string{
		"alike", "clay", "dry rocky", "grassy", "gravel", "humus",
		"loam", "not", "sandy", "silty", "yellow",
	}, LabelStrings())
	assert.Equal(t, 11, NumLabels)
}

func TestLabelsReturnsCopy(t *testing.T) {
	l := Labels()
	l[0] = "mud"

	c, err := FromIndex(0)
	require.NoError(t, err)
	assert.Equal(t, Alike, c)
}

func TestFromIndexOutOfRange(t *testing.T) {
	_, err := FromIndex(-1)
	assert.Error(t, err)
	_, err = FromIndex(NumLabels)
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	c, ok := Parse(" Sandy ")
	assert.True(t, ok)
	assert.Equal(t, Sandy, c)

	_, ok = Parse("peat")
	assert.False(t, ok)
	assert.True(t, Clay.Known())
	assert.Equal(t, "Dry rocky", DryRocky.Title())
}

func TestAssemble(t *testing.T) {
	scores := []float32{0.2, 0.9, 0.9, 0, 0, 0, 0, 0, 0, 0, 0}
	src := acquire.Locator("/tmp/clay.jpg")

	res, err := Assemble(1, scores, src)
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, Clay, res.Category)
	assert.Equal(t, AttributesFor(Clay), res.Attributes)
	assert.Equal(t, float32(0.9), res.Confidence)
	assert.Len(t, res.Scores, NumLabels)
	assert.Equal(t, float32(0.2), res.Scores[Alike])
	assert.Equal(t, src, res.Source)
	assert.False(t, res.CreatedAt.IsZero())
}

func TestAssembleWithoutScores(t *testing.T) {
	res, err := Assemble(6, nil, "loam.png")
	require.NoError(t, err)
	assert.Equal(t, Loam, res.Category)
	assert.Equal(t, "6.0 to 7.0", res.Attributes.PHRange)
	assert.Equal(t, "0.5% to 2.5%", res.Attributes.Potassium)
	assert.Nil(t, res.Scores)
}

func TestAssembleRejectsBadInput(t *testing.T) {
	_, err := Assemble(11, nil, "x.png")
	assert.Error(t, err)

	_, err = Assemble(0, []float32{1, 2}, "x.png")
	assert.Error(t, err)
}
