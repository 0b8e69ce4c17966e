package tags

func Frame() string {
	return describe()
}
