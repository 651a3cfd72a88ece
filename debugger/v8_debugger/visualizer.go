package v8_debugger

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/fansqz/js-debugger/debugger"
	e "github.com/fansqz/js-debugger/error"
	"github.com/fansqz/js-debugger/utils"
)

// Visualizer 基于对象图的可视化
type Visualizer struct {
	stringifier *Stringifier
}

func NewVisualizer(stringifier *Stringifier) *Visualizer {
	return &Visualizer{stringifier: stringifier}
}

func (v *Visualizer) matchStruct(value debugger.JsValue, structName string) debugger.JsObject {
	if value == nil {
		return nil
	}
	obj := value.AsObject()
	if obj == nil || obj.AsFunction() != nil {
		return nil
	}
	if structName != "" && obj.ClassName() != structName {
		return nil
	}
	return obj
}

func (v *Visualizer) StructVisual(ctx context.Context, dctx debugger.DebugContext, query *debugger.StructVisualQuery) (*debugger.StructVisualData, error) {
	if dctx == nil {
		return nil, e.ErrProgramIsRunning
	}
	frames, err := dctx.CallFrames()
	if err != nil {
		return nil, err
	}
	valueQuerySet := utils.List2set(query.Values)
	pointQuerySet := utils.List2set(query.Points)

	// 返回的指针和可视化节点
	pointVariables := make([]*debugger.VisualVariable, 0, 10)
	visualizeNodeSet := make(map[int64]*debugger.VisualNode)
	visualizeNodes := make([]*debugger.VisualNode, 0, 10)

	// 当前栈帧中指向目标对象的变量
	var objects []debugger.JsObject
	for i, frame := range frames {
		variables, err := frame.Variables(ctx)
		if err != nil {
			logrus.Errorf("[StructVisual] get variables of frame %d fail, err = %v", i, err)
			return nil, err
		}
		for _, variable := range variables {
			obj := v.matchStruct(variable.Value(), query.Struct)
			if obj == nil {
				continue
			}
			if i == 0 {
				pointVariables = append(pointVariables, debugger.NewVisualVariable(variable.Name(), obj.Type(), refKey(obj.RefID())))
			}
			objects = append(objects, obj)
		}
	}

	// 广度遍历所有目标节点
	for len(objects) != 0 {
		next := make([]debugger.JsObject, 0, len(objects))
		for _, obj := range objects {
			if _, ok := visualizeNodeSet[obj.RefID()]; ok {
				continue
			}
			node := &debugger.VisualNode{
				ID:   refKey(obj.RefID()),
				Type: obj.ClassName(),
			}
			props, err := obj.Properties(ctx)
			if err != nil {
				return nil, err
			}
			for _, prop := range props {
				if valueQuerySet.Contains(prop.Name()) {
					node.Values = append(node.Values, v.visualVariable(ctx, prop))
				} else if pointQuerySet.Contains(prop.Name()) {
					points, targets, err := v.pointVariables(ctx, prop, query.Struct)
					if err != nil {
						return nil, err
					}
					node.Points = append(node.Points, points...)
					next = append(next, targets...)
				}
			}
			visualizeNodeSet[obj.RefID()] = node
			visualizeNodes = append(visualizeNodes, node)
		}
		objects = next
	}
	return &debugger.StructVisualData{
		Points: pointVariables,
		Nodes:  visualizeNodes,
	}, nil
}

// pointVariables 指针域的值是目标节点的id，数组中的每个元素都作为指针
func (v *Visualizer) pointVariables(ctx context.Context, prop debugger.JsVariable, structName string) ([]*debugger.VisualVariable, []debugger.JsObject, error) {
	value := prop.Value()
	if value == nil {
		return nil, nil, nil
	}
	obj := value.AsObject()
	if obj != nil && obj.AsArray() != nil {
		elements, err := obj.AsArray().ToSparseArray(ctx)
		if err != nil {
			return nil, nil, err
		}
		var points []*debugger.VisualVariable
		var targets []debugger.JsObject
		for _, element := range elements.Values() {
			p, t, err := v.pointVariables(ctx, element.(debugger.JsVariable), structName)
			if err != nil {
				return nil, nil, err
			}
			for _, point := range p {
				point.Name = prop.Name() + "[" + point.Name + "]"
			}
			points = append(points, p...)
			targets = append(targets, t...)
		}
		return points, targets, nil
	}
	if target := v.matchStruct(value, structName); target != nil {
		return []*debugger.VisualVariable{debugger.NewVisualVariable(prop.Name(), target.Type(), refKey(target.RefID()))},
			[]debugger.JsObject{target}, nil
	}
	return []*debugger.VisualVariable{debugger.NewVisualVariable(prop.Name(), value.Type(), value.ValueString())}, nil, nil
}

func (v *Visualizer) visualVariable(ctx context.Context, variable debugger.JsVariable) *debugger.VisualVariable {
	value := variable.Value()
	if value == nil {
		return debugger.NewVisualVariable(variable.Name(), debugger.TypeUndefined, "undefined")
	}
	return debugger.NewVisualVariable(variable.Name(), value.Type(), v.stringifier.Stringify(ctx, value))
}

func (v *Visualizer) VariableVisual(ctx context.Context, dctx debugger.DebugContext, query *debugger.VariableVisualQuery) (*debugger.VariableVisualData, error) {
	if dctx == nil {
		return nil, e.ErrProgramIsRunning
	}
	frames, err := dctx.CallFrames()
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return &debugger.VariableVisualData{}, nil
	}
	variables, err := frames[0].Variables(ctx)
	if err != nil {
		return nil, err
	}
	pointQuerySet := utils.List2set(query.PointVars)
	structVarNameSet := utils.List2set(query.StructVars)

	pointVariables := make([]*debugger.VisualVariable, 0, 10)
	structs := []*debugger.VisualNode{}
	for _, variable := range variables {
		if pointQuerySet.Contains(variable.Name()) {
			pointVariables = append(pointVariables, v.visualVariable(ctx, variable))
		}
		if !structVarNameSet.Contains(variable.Name()) || variable.Value() == nil {
			continue
		}
		obj := variable.Value().AsObject()
		if obj == nil {
			continue
		}
		var elements []debugger.JsVariable
		if arr := obj.AsArray(); arr != nil {
			sparse, err := arr.ToSparseArray(ctx)
			if err != nil {
				logrus.Errorf("[VariableVisual] load %s fail, err = %v", variable.Name(), err)
				continue
			}
			for _, element := range sparse.Values() {
				elements = append(elements, element.(debugger.JsVariable))
			}
		} else if elements, err = obj.Properties(ctx); err != nil {
			logrus.Errorf("[VariableVisual] load %s fail, err = %v", variable.Name(), err)
			continue
		}
		values := make([]*debugger.VisualVariable, len(elements))
		for i, element := range elements {
			values[i] = v.visualVariable(ctx, element)
		}
		structs = append(structs, &debugger.VisualNode{
			Name:   variable.Name(),
			ID:     refKey(obj.RefID()),
			Type:   obj.ClassName(),
			Values: values,
		})
	}
	return &debugger.VariableVisualData{
		Points:  pointVariables,
		Structs: structs,
	}, nil
}
