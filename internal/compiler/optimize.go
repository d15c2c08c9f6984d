package compiler

// markStatic flags sub-trees that never change between renders.
func markStatic(el *element) {
	el.static = el.pre || (!el.dynamic && !el.hasFor && !el.hasIf && !el.isElse && !el.isElseIf &&
		el.key == "" && el.tag != "template" && !el.once)

	for _, c := range el.children {
		if child, ok := c.(*element); ok {
			markStatic(child)
		}
		if !c.isStatic() {
			el.static = false
		}
	}
	for _, cond := range el.conditions[min(1, len(el.conditions)):] {
		markStatic(cond.el)
	}
}

// markStaticRoots picks the static sub-trees worth hoisting into their own
// render function: static elements with more than a single text child.
// Nothing inside a v-for is hoisted.
func markStaticRoots(el *element, inFor bool) {
	if el.static && !inFor {
		if len(el.children) > 0 && !(len(el.children) == 1 && isText(el.children[0])) {
			el.staticRoot = true
			return
		}
	}

	inFor = inFor || el.hasFor
	for _, c := range el.children {
		if child, ok := c.(*element); ok {
			markStaticRoots(child, inFor)
		}
	}
	for _, cond := range el.conditions[min(1, len(el.conditions)):] {
		markStaticRoots(cond.el, inFor)
	}
}

func isText(n node) bool {
	_, ok := n.(*textNode)
	return ok
}
