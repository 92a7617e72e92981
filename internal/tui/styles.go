// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package tui

import "charm.land/lipgloss/v2"

// styles groups the cell styling used by the layered compositor. Kept as a
// single value rather than package-level vars so a future theme switch can
// swap the whole set at once.
type styles struct {
	user      lipgloss.Style
	assistant lipgloss.Style
	system    lipgloss.Style
	muted     lipgloss.Style
	warn      lipgloss.Style
	errStyle  lipgloss.Style
	status    lipgloss.Style
	avatar    lipgloss.Style
	taskDone  lipgloss.Style
	taskFail  lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		user:      lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("15")),
		system:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true),
		muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		warn:      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		errStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		status:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true),
		avatar:    lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		taskDone:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		taskFail:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}
