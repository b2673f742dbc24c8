// Package organizer is a Go client for the organizer HTTP API.
//
//	c, _ := organizer.New("http://localhost:8080", organizer.WithAPIKey(key))
//	reply, _ := c.Send(ctx, "42", "bought milk for 10 and bread for 30")
//	ans, _ := c.Search(ctx, "42", organizer.SearchRequest{Query: "how much did I spend on food?"})
//	fmt.Println(ans.Answer, ans.Aggregate)
//
// Errors returned by the API unwrap to the sentinels in this package, so
// errors.Is(err, organizer.ErrListNotFound) works across the wire.
package organizer
