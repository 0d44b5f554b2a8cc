package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildTsQuery(t *testing.T) {
	assert.Equal(t, "emission | limits", buildTsQuery([]string{"emission", "limits"}))

	// 特殊字符被剔除，空词被丢弃
	assert.Equal(t, "emission", buildTsQuery([]string{"emi!ssion", "&|:*", ""}))
	assert.Equal(t, "", buildTsQuery(nil))

	// 中文词项保留
	assert.Equal(t, "排放 | 限值", buildTsQuery([]string{"排放", "限值"}))
}
