package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/lazyframe/pkg/engine/internal/planner/logical"
)

const ordersCSV = "order,user,amount\n1,1,9.5\n2,1,3\n3,2,12\n4,9,1\n"

func usersAndOrders(t *testing.T) string {
	users := writeFile(t, "users.csv", usersCSV)
	orders := writeFile(t, "orders.csv", ordersCSV)
	return `
sources:
  users:
    paths: [` + users + `]
    schema:
      - {name: id, type: int64}
      - {name: name, type: str}
      - {name: age, type: int64}
  orders:
    format: csv
    paths: [` + orders + `]
    schema:
      - {name: order, type: int64}
      - {name: user, type: int64}
      - {name: amount, type: float64}
`
}

func TestQuery_Plan(t *testing.T) {
	tt := []struct {
		name  string
		query string
		want  string
	}{
		{
			name: "steps",
			query: `
query:
  from: users
  steps:
    - with_columns: [{op: "+", args: [{col: age}, {lit: 1}], alias: next}]
    - head: 2
`,
			want: `
Slice offset=0 len=2
└── HStack exprs=((col("age") + 1).alias("next"))
    └── Scan format=csv sources=(users.csv)
`,
		},
		{
			name: "group by",
			query: `
query:
  from: orders
  steps:
    - group_by:
        keys: [{col: user}]
        aggs: [{agg: sum, args: [{col: amount}], alias: total}]
`,
			want: `
Aggregate keys=(col("user")) aggs=(col("amount").sum().alias("total"))
└── Scan format=csv sources=(orders.csv)
`,
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			q, err := ParseQuery([]byte(sourcesForPrinting+tc.query), "")
			require.NoError(t, err)
			plan, err := q.Plan()
			require.NoError(t, err)
			require.Equal(t, tc.want, "\n"+logical.PrintAsTree(plan))
		})
	}
}

const sourcesForPrinting = `
sources:
  users:
    paths: [users.csv]
    schema: [{name: id, type: int64}, {name: name, type: str}, {name: age, type: int64}]
  orders:
    paths: [orders.csv]
    schema: [{name: order, type: int64}, {name: user, type: int64}, {name: amount, type: float64}]
`

func TestQuery_Errors(t *testing.T) {
	tt := []struct {
		name  string
		query string
	}{
		{name: "unknown field", query: "query: {from: users, where: x}"},
		{name: "unknown source", query: "query: {from: nowhere}"},
		{name: "empty frame", query: "query: {steps: [{head: 1}]}"},
		{name: "empty step", query: "query: {from: users, steps: [{}]}"},
		{name: "empty expression", query: "query: {from: users, steps: [{filter: {}}]}"},
		{name: "unknown operator", query: "query: {from: users, steps: [{filter: {op: '<>', args: [{col: id}, {lit: 1}]}}]}"},
		{name: "arity", query: "query: {from: users, steps: [{filter: {op: '==', args: [{col: id}]}}]}"},
		{name: "unknown type", query: "query: {from: users, steps: [{select: [{cast: decimal, args: [{col: id}]}]}]}"},
		{name: "unknown join", query: "query: {from: users, steps: [{join: {with: {from: orders}, on: [{col: id}], how: outer}}]}"},
		{name: "recursive frame", query: "frames: {a: {from: a}}\nquery: {from: a}"},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			q, err := ParseQuery([]byte(sourcesForPrinting+tc.query), "")
			if err == nil {
				_, err = q.Plan()
			}
			require.Error(t, err)
		})
	}
}

func TestQuery_Run(t *testing.T) {
	tt := []struct {
		name  string
		query string
		want  string
	}{
		{
			name: "join and aggregate",
			query: `
query:
  from: orders
  steps:
    - join:
        with: {from: users}
        left_on: [{col: user}]
        right_on: [{col: id}]
    - group_by:
        keys: [{col: name}]
        aggs: [{agg: sum, args: [{col: amount}], alias: total}]
        maintain_order: true
    - sort: {by: [{col: total}]}
`,
			want: "bob:12\nalice:12.5\n",
		},
		{
			name: "shared frame",
			query: `
frames:
  adults:
    from: users
    steps:
      - filter: {op: ">=", args: [{col: age}, {lit: 30}]}
query:
  concat:
    - {from: adults, steps: [{select: [{col: name}, {col: age}]}]}
    - {from: adults, steps: [{select: [{col: name}, {op: "*", args: [{col: age}, {lit: 2}], alias: age}]}]}
  steps:
    - sort: {by: [{col: age}]}
`,
			want: "alice:30\ndave:41\nalice:60\ndave:82\n",
		},
		{
			name: "when then otherwise",
			query: `
query:
  from: users
  steps:
    - select:
        - {col: name}
        - when: {fn: is_null, args: [{col: age}]}
          then: {lit: unknown}
          otherwise: {cast: str, args: [{col: age}]}
          alias: age
`,
			want: "alice:30\nbob:25\ncarol:unknown\ndave:41\n",
		},
		{
			name: "unique and rename",
			query: `
query:
  from: orders
  steps:
    - unique: {subset: [user], keep: last, maintain_order: true}
    - rename: [{from: amount, to: value}]
    - select: [{col: user}, {col: value}]
`,
			want: "1:3\n2:12\n9:1\n",
		},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestEngine(t, DefaultConfig())
			q, err := ParseQuery([]byte(usersAndOrders(t)+tc.query), "")
			require.NoError(t, err)
			plan, err := q.Plan()
			require.NoError(t, err)

			res, err := e.Collect(context.Background(), plan)
			require.NoError(t, err)
			defer res.Release()

			var got string
			for i := 0; i < int(res.Record.NumRows()); i++ {
				got += res.Record.Column(0).ValueStr(i) + ":" + res.Record.Column(1).ValueStr(i) + "\n"
			}
			require.Equal(t, tc.want, got)
		})
	}
}
