package utils

import (
	"sort"

	"github.com/emirpasic/gods/sets"
	"github.com/emirpasic/gods/sets/hashset"
)

func List2set[T any](list []T) sets.Set {
	set := hashset.New()
	for _, value := range list {
		set.Add(value)
	}
	return set
}

// SortedInt64s 把int64集合转成有序切片
func SortedInt64s(set sets.Set) []int64 {
	answer := make([]int64, 0, set.Size())
	for _, v := range set.Values() {
		if id, ok := v.(int64); ok {
			answer = append(answer, id)
		}
	}
	sort.Slice(answer, func(i, j int) bool { return answer[i] < answer[j] })
	return answer
}
