package metric

// MetricItem - 一个独立的metric模块对应一个MetricItem
// 各模块自己决定统计什么，这里只要求能导出成json文本
type MetricItem interface {
	JSONString() string
}

type mockMetricItem struct {
	name string
}

func (mock *mockMetricItem) JSONString() string {
	return mock.name
}
