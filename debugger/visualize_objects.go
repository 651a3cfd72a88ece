package debugger

// StructVisualQuery 可视化查询的参数
// 结构体导向，从栈顶栈帧的变量出发，沿着指针域遍历对象图
// 1. 找出所有指向className为Struct的对象的变量
// 2. 广度遍历所有可以到达的同类对象并返回
type StructVisualQuery struct {
	// 需要查询的对象的className，为空时不限制
	Struct string `json:"struct"`
	// Values 数据域
	Values []string `json:"values"`
	// Points 指针域，指针域如果是一个数组，那么这个数组下所有元素都将作为指针
	Points []string `json:"points"`
}

// StructVisualData 可视化查询返回的数据
type StructVisualData struct {
	// Nodes 可视化结构的节点列表
	Nodes []*VisualNode `json:"nodes"`
	// Points 指向节点的变量列表
	Points []*VisualVariable `json:"points"`
}

// VariableVisualQuery
// 变量为导向，查询变量的值作为可视化数据，数组类型会使用这种
type VariableVisualQuery struct {
	// StructVars 作为结构体的变量，一般是数组
	StructVars []string `json:"structVars"`
	// PointVars 作为指针的变量，一般是数组下标
	PointVars []string `json:"pointVars"`
}

// VariableVisualData
// 变量为导向，查询变量的值作为可视化数据
type VariableVisualData struct {
	Structs []*VisualNode     `json:"structs"`
	Points  []*VisualVariable `json:"points"`
}

type VisualVariable struct {
	// 变量名称
	Name string `json:"name"`
	// 变量类型
	Type string `json:"type"`
	// 变量的值，指针域的值是目标节点的ID
	Value string `json:"value"`
}

// VisualNode 可视化的一个节点
// 包含所有的数据域和指针域
type VisualNode struct {
	Name string `json:"name"`
	// 对象的handle
	ID     string            `json:"id"`
	Type   string            `json:"type"`
	Values []*VisualVariable `json:"values"`
	Points []*VisualVariable `json:"points"`
}

func NewVisualVariable(name string, typ ValueType, value string) *VisualVariable {
	return &VisualVariable{
		Name:  name,
		Type:  typ.String(),
		Value: value,
	}
}
