package core

// CategoryCount is the number of records stored under one category.
type CategoryCount struct {
	Name  string
	Count int64
}

// Summary is the aggregate view rendered next to the expense list.
type Summary struct {
	Filter     Filter
	Total      Money
	Categories []string
	Counts     []CategoryCount
}
