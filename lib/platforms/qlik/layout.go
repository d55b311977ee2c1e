package qlik

import (
	"baypd-scraper/lib/upstream"
	"encoding/json"
	"math"
)

// Cell is one value of a hypercube, qNum is NaN for text-only cells.
type Cell struct {
	Text string
	Num  float64
}

func (c Cell) IsNum() bool {
	return !math.IsNaN(c.Num)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, err := n.Float64()
		if err == nil {
			return f
		}
	}
	// Qlik sends "NaN" for cells without a numeric value
	return math.NaN()
}

func cellFromJSON(v any) (Cell, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Cell{}, upstream.Formatf("qlik cell is %T", v)
	}
	text, _ := obj["qText"].(string)
	return Cell{Text: text, Num: toFloat(obj["qNum"])}, nil
}

// Matrix reads the rows of an unstacked chart,
// qLayout.qHyperCube.qDataPages[0].qMatrix.
func Matrix(layout Layout) ([][]Cell, error) {
	raw, err := upstream.DigAs[[]any](layout, "qLayout", "qHyperCube", "qDataPages", 0, "qMatrix")
	if err != nil {
		return nil, err
	}
	out := make([][]Cell, len(raw))
	for i, row := range raw {
		cells, ok := row.([]any)
		if !ok {
			return nil, upstream.Formatf("qlik matrix row %d is %T", i, row)
		}
		out[i] = make([]Cell, len(cells))
		for k, cell := range cells {
			out[i][k], err = cellFromJSON(cell)
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Node is an entry of a stacked chart, one level of nesting per dimension.
type Node struct {
	Text     string
	Value    float64
	Elem     int
	SubNodes []Node
}

func nodeFromJSON(v any) (Node, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Node{}, upstream.Formatf("qlik node is %T", v)
	}
	text, _ := obj["qText"].(string)
	node := Node{
		Text:  text,
		Value: toFloat(obj["qValue"]),
		Elem:  int(toFloat(obj["qElemNo"])),
	}
	children, _ := obj["qSubNodes"].([]any)
	for _, child := range children {
		sub, err := nodeFromJSON(child)
		if err != nil {
			return Node{}, err
		}
		node.SubNodes = append(node.SubNodes, sub)
	}
	return node, nil
}

// StackedNodes reads the top level nodes of a stacked chart,
// qLayout.qHyperCube.qStackedDataPages[0].qData[0].qSubNodes.
func StackedNodes(layout Layout) ([]Node, error) {
	raw, err := upstream.DigAs[[]any](layout, "qLayout", "qHyperCube", "qStackedDataPages", 0, "qData", 0, "qSubNodes")
	if err != nil {
		return nil, err
	}
	out := make([]Node, len(raw))
	for i, n := range raw {
		out[i], err = nodeFromJSON(n)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LastReloadTime is qLastReloadTime of an app layout.
func LastReloadTime(layout Layout) (string, error) {
	return upstream.DigAs[string](layout, "qLayout", "qLastReloadTime")
}
