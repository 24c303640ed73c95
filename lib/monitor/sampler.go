/*
Copyright 2026 The Activity Tracker Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package monitor

import (
	"context"

	"github.com/gravitational/trace"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemSampler reads CPU and memory utilization from the kernel. GPU
// utilization has no portable source and always reads 0.
type SystemSampler struct{}

// Sample implements MetricsSampler. CPU utilization is measured against the
// previous call, so the first sample of a fresh process reflects activity
// since boot and settles from the second call on.
func (SystemSampler) Sample(ctx context.Context) (Sample, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Sample{}, trace.Wrap(err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, trace.Wrap(err)
	}
	sample := Sample{Memory: vm.UsedPercent}
	if len(percents) > 0 {
		sample.CPU = percents[0]
	}
	return sample, nil
}
