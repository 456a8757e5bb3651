package wrangle_test

import (
	"context"
	"fmt"

	wrangle "github.com/SimonWaldherr/wrangle"
)

func visitsTable() *wrangle.Table {
	t := wrangle.NewTable("visits", []wrangle.Column{
		{Name: "id", Type: wrangle.IntType},
		{Name: "visits", Type: wrangle.IntType},
		{Name: "status", Type: wrangle.StringType},
	})
	rows := [][]any{
		{int64(1), int64(3), "active"},
		{int64(2), int64(0), "active"},
		{int64(3), int64(0), "active"},
		{int64(4), int64(5), "active"},
	}
	for _, r := range rows {
		t.AppendRow(r)
	}
	return t
}

func ExampleReplace() {
	t := visitsTable()

	out, n, err := wrangle.Replace(t, "status", "'churned'",
		"visits == 0 & visits[n-1] == 0")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("(%d real changes made)\n", n)

	status, _ := out.Column("status")
	fmt.Println(status)
	// Output:
	// (1 real changes made)
	// [active active churned active]
}

func ExampleReplace_relativeValue() {
	t := wrangle.NewTable("prices", []wrangle.Column{
		{Name: "price", Type: wrangle.IntType},
	})
	for _, v := range []int64{10, 20, 30} {
		t.AppendRow([]any{v})
	}

	// price[n+1] reads the value one row ahead; past the end it is nil
	out, n, _ := wrangle.Replace(t, "price", "price[n+1]", "price > 15")
	price, _ := out.Column("price")
	fmt.Println(n, price)
	// Output:
	// 2 [10 30 <nil>]
}

func ExampleSimpleReplace() {
	t := visitsTable()

	out, n, _ := wrangle.SimpleReplace(t, "visits", int64(1), "visits == 0")
	visits, _ := out.Column("visits")
	fmt.Println(n, visits)
	// Output:
	// 2 [3 1 1 5]
}

func ExampleOn() {
	ws := wrangle.NewWorkspace()
	ws.Put(visitsTable())

	report, err := wrangle.On(ws).
		Named("churn").
		Table("visits").
		Replace("status", "'churned'", "visits == 0 & visits[n-1] == 0").
		Rename(map[string]string{"status": "churn_status"}).
		Run(context.Background())
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(len(report.Steps), "steps,", report.Steps[0].Changed, "changed")

	out, _ := ws.Get("visits")
	fmt.Println(out.HasColumn("churn_status"))
	// Output:
	// 2 steps, 1 changed
	// true
}

func ExampleIsMissingColumn() {
	t := visitsTable()
	_, _, err := wrangle.Replace(t, "revenue", "0", "")
	fmt.Println(wrangle.IsMissingColumn(err))
	// Output:
	// true
}
