package classify

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		text   string
		ctx    Context
		expect Category
	}{
		{text: "hi!", expect: ChitChat},
		{text: "Thanks a lot", expect: ChitChat},
		{text: "hello, how are you?", expect: ChitChat},
		{text: "hi, how many deals are closed?", expect: DataQuestion},
		{text: "How many rows are in the deals file?", expect: DataQuestion},
		{text: "show revenue by region", expect: DataQuestion},
		{text: "", expect: DataQuestion},
		{text: "describe the file", expect: MetadataQuestion},
		{text: "Tell me about this dataset", expect: MetadataQuestion},
		{text: "what columns does it have?", expect: MetadataQuestion},
		{text: "which datasets do I have", expect: MetadataQuestion},
		{text: "can I edit the data?", expect: MetadataQuestion},
		{text: "set the amount of deal 5 to 300", expect: EditInstruction},
		{text: "increase all prices by 10%", expect: EditInstruction},
		{text: "delete rows where stage is lost", expect: EditInstruction},
		{text: "please change the stage of deal 7 to won", expect: EditInstruction},
		{text: "update status to closed where id = 3", expect: EditInstruction},
		{text: "rename column amount to revenue", expect: EditInstruction},
		{text: "could you double the salaries", expect: EditInstruction},
		{text: "how did revenue change from 2022 to 2023", expect: DataQuestion},
		{text: "show the price increase by month", expect: DataQuestion},
		{text: "change in revenue from 2022 to 2023", expect: DataQuestion},
		{text: "which deals were updated to closed won", expect: DataQuestion},
		{text: "double check the total amount", expect: DataQuestion},
		{text: "compare the salary increase by department", expect: DataQuestion},
		{text: "decrease in deals by stage", expect: DataQuestion},
		{text: "show it as a bar chart", ctx: Context{HasActiveVisualization: true}, expect: VisualizationControl},
		{text: "line chart instead", ctx: Context{HasActiveVisualization: true}, expect: VisualizationControl},
		{text: "change the colors of the chart", ctx: Context{HasActiveVisualization: true}, expect: VisualizationControl},
		{text: "show it as a bar chart", expect: DataQuestion},
	}
	for _, tc := range cases {
		if got := Classify(tc.text, tc.ctx); got != tc.expect {
			t.Fatalf("Classify(%q) = %q, want %q", tc.text, got, tc.expect)
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	text := "what is the average amount per stage?"
	first := Classify(text, Context{})
	for i := 0; i < 10; i++ {
		if got := Classify(text, Context{}); got != first {
			t.Fatalf("Classify() changed from %q to %q", first, got)
		}
	}
}

func TestRequestedView(t *testing.T) {
	cases := map[string]View{
		"show it as a line chart": ViewLine,
		"bar chart please":        ViewBar,
		"as a table":              ViewTable,
		"make it prettier":        ViewNone,
	}
	for text, want := range cases {
		if got := RequestedView(text); got != want {
			t.Fatalf("RequestedView(%q) = %q, want %q", text, got, want)
		}
	}
}
