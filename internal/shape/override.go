package shape

type View string

const (
	ViewTable View = "table"
	ViewBar   View = "bar"
	ViewLine  View = "line"
)

// Override re-targets d at a view the user asked for. It reports false and
// returns d unchanged when the data cannot be drawn that way.
func Override(d Directive, view View) (Directive, bool) {
	switch view {
	case ViewTable:
		if d.Tag == TagNarrative {
			return d, false
		}
		d.Tag = TagTabular
		return d, true
	case ViewBar:
		if len(d.Points) == 0 {
			return d, false
		}
		d.Tag = TagCategoryCount
		return d, true
	case ViewLine:
		if len(d.Points) < 2 {
			return d, false
		}
		d.Tag = TagTimeSeries
		return d, true
	default:
		return d, false
	}
}
