package catalog

// Default is the 2026 spring semester configuration for the AI convergence
// department. Deployments override it with CATALOG_FILE.
func Default() *Catalog {
	return &Catalog{
		Semester: Semester{
			Name:         "2026 Spring Semester",
			Registration: "2026.02.23 ~ 2026.03.06",
			Start:        "2026.03.09",
			End:          "2026.05.02",
		},
		Courses: []Course{
			{
				ID:          "gen-ai-101",
				Title:       "Understanding and Application of Generative AI",
				TitleEn:     "Understanding and Application of Generative AI",
				Instructor:  "Prof. Choi Jin-yi",
				Description: "Structure and use of generative tools such as GPT and Gemini, building integrated AI literacy.",
				Dates:       []string{"Mar 9", "Mar 16", "Mar 23"},
			},
			{
				ID:          "media-creation",
				Title:       "AI-Based Media Creation",
				TitleEn:     "AI-Based Media Creation",
				Instructor:  "Prof. Ma Sang-wook",
				Description: "Project course on media content creation, video and beyond, built on AI tooling.",
				Dates:       []string{"Mar 26", "Apr 2", "Apr 9"},
			},
			{
				ID:          "creative-writing",
				Title:       "AI-Assisted Creative Writing",
				TitleEn:     "AI-Assisted Creative Writing",
				Instructor:  "Prof. Kim Se-kwang",
				Description: "Writing with AI assistance, through the full creator pipeline up to publication.",
				Dates:       []string{"Mar 31", "Apr 2", "Apr 9"},
			},
			{
				ID:          "business-ai",
				Title:       "AI-Based Introduction to Business",
				TitleEn:     "AI-Based Introduction to Business",
				Instructor:  "Prof. Choi Yoon-sik",
				Description: "What management theory looks like in the AI era.",
				Dates:       []string{"Apr 25", "May 2"},
			},
			{
				ID:          "ethics-ai",
				Title:       "Christian Ethics for Life in the Age of AI",
				TitleEn:     "Christian Ethics for Life in the Age of AI",
				Instructor:  "Prof. Choi Young-jun",
				Description: "Practicing faith within the society and culture of the AI era.",
				Dates:       []string{"Apr 6", "Apr 13", "Apr 20"},
				Type:        "foundation",
			},
		},
		Professors: []AllowedUser{
			{Name: "Kim Se-kwang", Email: "sekwang.kim@oikos.ac.kr"},
			{Name: "Choi Young-jun", Email: "youngjun.choi@oikos.ac.kr"},
			{Name: "Ma Sang-wook", Email: "sangwook.ma@oikos.ac.kr"},
			{Name: "Choi Jin-yi", Email: "jinyi.choi@oikos.ac.kr"},
			{Name: "Choi Yoon-sik", Email: "yoonsik.choi@oikos.ac.kr"},
		},
		Admins: []AllowedUser{
			{Name: "System Administrator", Email: "admin@oikos.ac.kr"},
			{Name: "Department Head", Email: "head@oikos.ac.kr"},
			{Name: "Choi Young-jun", Email: "youngjun.choi@oikos.ac.kr"},
		},
		Announcements: []Announcement{
			{
				ID:      "1",
				Title:   "2026 spring semester opening",
				Date:    "2026-02-15",
				Author:  "Administration Office",
				Content: "Opening notice for the AI convergence department 2026 spring semester. Check schedules and classrooms.",
			},
			{
				ID:      "2",
				Title:   "Course registration guide",
				Date:    "2026-02-20",
				Author:  "Administration Office",
				Content: "Register for courses before attending lectures to have credits counted toward graduation.",
			},
		},
		DefenseSchedules: []DefenseSchedule{
			{Date: "Mar 3 (Tue)", Time: "8 PM", Students: []string{"Bae Hye-sook", "Oh Kyung-geun", "Kim Jae-sung"}},
			{Date: "Mar 5 (Thu)", Time: "8 PM", Students: []string{"Shin Yi-jae", "Sung Jung-min", "Kim Shin-ae"}},
			{Date: "Mar 9 (Mon)", Time: "8 PM", Students: []string{"Lee Kyung-sook", "Kim Eun-ha", "Lee Kyung-rim", "Cho Jae-yoon"}},
		},
	}
}
