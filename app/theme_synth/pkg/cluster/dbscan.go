package cluster

const noise = -1

// dbscan 基于预计算距离矩阵的密度聚类。
// 点 i 的邻域为 dist[i][j] <= eps 的所有 j（含自身），邻域大小 >= minPts 为核心点。
// 按下标顺序扩展，结果对相同输入确定。返回每个点的簇标签，噪声为 -1。
func dbscan(dist [][]float64, eps float64, minPts int) []int {
	n := len(dist)
	labels := make([]int, n)
	visited := make([]bool, n)
	for i := range labels {
		labels[i] = noise
	}

	next := 0
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		seeds := neighbors(dist, i, eps)
		if len(seeds) < minPts {
			continue
		}

		labels[i] = next
		queued := make([]bool, n)
		for _, j := range seeds {
			queued[j] = true
		}
		for k := 0; k < len(seeds); k++ {
			j := seeds[k]
			if labels[j] == noise {
				labels[j] = next
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			nb := neighbors(dist, j, eps)
			if len(nb) < minPts {
				continue
			}
			for _, m := range nb {
				if !queued[m] {
					queued[m] = true
					seeds = append(seeds, m)
				}
			}
		}
		next++
	}
	return labels
}

func neighbors(dist [][]float64, i int, eps float64) []int {
	var out []int
	for j, d := range dist[i] {
		if d <= eps {
			out = append(out, j)
		}
	}
	return out
}

// groupLabels 将标签转为按首个成员下标排序的分组，丢弃噪声
func groupLabels(labels []int) [][]int {
	order := make([]int, 0)
	groups := make(map[int][]int)
	for i, l := range labels {
		if l == noise {
			continue
		}
		if _, ok := groups[l]; !ok {
			order = append(order, l)
		}
		groups[l] = append(groups[l], i)
	}
	out := make([][]int, 0, len(order))
	for _, l := range order {
		out = append(out, groups[l])
	}
	return out
}
