package utils

import (
	"net"
	"strconv"
)

// CheckPortListenable 检查本机端口能否被监听
func CheckPortListenable(host string, port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	l.Close()
	return true
}

/**
 * BusyPorts 找出已被占用的端口
 * @param {string} host - 监听地址
 * @param {[]int} ports - 待检查的端口
 * @returns {[]int} 无法监听的端口，保持输入顺序
 */
func BusyPorts(host string, ports []int) []int {
	var busy []int
	for _, port := range ports {
		if !CheckPortListenable(host, port) {
			busy = append(busy, port)
		}
	}
	return busy
}
