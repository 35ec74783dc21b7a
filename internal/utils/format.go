package utils

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iancoleman/orderedmap"
	"github.com/jedib0t/go-pretty/v6/table"
)

/**
 * StructToOrderedMap 将结构体转换为保持字段顺序的map
 * @param {any} v - 带 json tag 的结构体
 * @returns {*orderedmap.OrderedMap} 键顺序与结构体字段顺序一致
 * @returns {error} 序列化失败时返回错误
 */
func StructToOrderedMap(v any) (*orderedmap.OrderedMap, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	om := orderedmap.New()
	if err := json.Unmarshal(data, om); err != nil {
		return nil, err
	}
	return om, nil
}

/**
 * WriteFormat 以表格形式输出记录
 * @param {io.Writer} w - 输出目标
 * @param {[]*orderedmap.OrderedMap} rows - 记录列表，表头取第一条记录的键
 * @description
 * - 后续记录缺少的列输出为空
 */
func WriteFormat(w io.Writer, rows []*orderedmap.OrderedMap) {
	if len(rows) == 0 {
		return
	}
	keys := rows[0].Keys()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, 0, len(keys))
	for _, k := range keys {
		header = append(header, k)
	}
	t.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, 0, len(keys))
		for _, k := range keys {
			if v, ok := row.Get(k); ok && v != nil {
				r = append(r, fmt.Sprint(v))
			} else {
				r = append(r, "")
			}
		}
		t.AppendRow(r)
	}
	t.Render()
}
