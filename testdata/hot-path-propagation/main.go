package main

import (
	"fmt"
	"net/http"
	"regexp"
)

type server struct{}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, render(r.URL.Path))
}

func render(path string) string {
	return fmt.Sprintf("<p>%s</p>", path)
}

func setup() *regexp.Regexp {
	return regexp.MustCompile(`^/api/`)
}

func main() {
	setup()
	_ = http.ListenAndServe(":8080", &server{})
}
