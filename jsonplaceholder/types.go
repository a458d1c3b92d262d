package jsonplaceholder

// Post is one entry of /posts.
type Post struct {
	ID     int    `json:"id" cbor:"id"`
	UserID int    `json:"userId" cbor:"userId"`
	Title  string `json:"title" cbor:"title"`
	Body   string `json:"body" cbor:"body"`
}

// Todo is one entry of /todos. Todos are handled by pointer so an optimistic
// insert can be swapped for the server copy by identity.
type Todo struct {
	ID        int    `json:"id,omitempty" cbor:"id"`
	UserID    int    `json:"userId,omitempty" cbor:"userId"`
	Title     string `json:"title" cbor:"title"`
	Completed bool   `json:"completed" cbor:"completed"`
}

// PostFilter narrows /posts. Zero fields are omitted from the request.
type PostFilter struct {
	UserID int
	Start  int
	Limit  int
}
