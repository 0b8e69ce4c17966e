package game

import (
	"fmt"
	"reflect"
	"regexp"
)

type Engine struct{}

type Player struct {
	Engine
	name string
}

//callaudit:hotpath
func (p *Player) Update() string {
	return p.describe()
}

func (p *Player) describe() string {
	return fmt.Sprintf("player %s", p.name)
}

//nolint:callaudit // runs once at startup
func Setup() {
	_ = regexp.MustCompile(`a+`)
}

func Kind(v any) string {
	return reflect.TypeOf(v).Kind().String()
}

//callaudit:coldpath
func Other() {}

func init() {
	_ = regexp.MustCompile(`b+`)
}
