package tree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrinter(t *testing.T) {
	root := NewNode("Select", "", NewProperty("columns", true, "a", "b"))
	filter := root.AddComment("BinaryExpr", "", []Property{NewProperty("op", false, ">")})
	filter.AddChild("Column", "", []Property{NewProperty("name", false, "age")})
	filter.AddChild("Literal", "", []Property{NewProperty("value", false, 21)})

	scan := root.AddChild("Scan", "", []Property{NewProperty("source", false, "users.csv")})
	scan.AddComment("Column", "", []Property{NewProperty("name", false, "app")})

	var sb strings.Builder
	NewPrinter(&sb).Print(root)

	expected := `
Select columns=(a, b)
│   └── BinaryExpr op=>
│       ├── Column name=age
│       └── Literal value=21
└── Scan source=users.csv
        └── Column name=app
`
	require.Equal(t, expected, "\n"+sb.String())
}
