package types

// PageSnapshot is what the challenge detector looks at after a navigation.
type PageSnapshot struct {
	URL   string
	Title string
	HTML  string
}
