package milvus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildFilter(t *testing.T) {
	assert.Equal(t, "", buildFilter(nil, nil))

	assert.Equal(t,
		`(collection_id == "reg")`,
		buildFilter([]string{"reg"}, nil),
	)

	assert.Equal(t,
		`(collection_id == "reg" || collection_id == "tech") && (document_id == "doc-a")`,
		buildFilter([]string{"reg", "tech"}, []string{"doc-a"}),
	)

	// 空白值被忽略
	assert.Equal(t,
		`(document_id == "doc-a")`,
		buildFilter([]string{" ", ""}, []string{"doc-a", "  "}),
	)
}
