package engine

import (
	"encoding/json"
	"strings"
	"time"
)

type Entity struct {
	Tags string
}

type Scene struct {
	entities []*Entity
}

//callaudit:hotpath
func (s *Scene) Tick() {
	for _, e := range s.entities {
		e.tags()
	}
}

func (e *Entity) tags() []string {
	return strings.Split(e.Tags, ",")
}

type Behaviour struct{}

func (b *Behaviour) Update() {}

type Enemy struct {
	Behaviour
	state map[string]int
}

func (e *Enemy) Update() {
	data, _ := json.Marshal(e.state)
	_ = data
}

func (e *Enemy) Save() []byte {
	data, _ := json.Marshal(e.state)
	return data
}

func Wait() {
	time.Sleep(time.Millisecond)
}
